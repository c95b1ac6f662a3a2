// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfile

import "testing"

func TestPolicyFileSize(t *testing.T) {
	tests := []struct {
		policy Policy
		zone   int64
	}{
		{DefaultPolicy(), 1024 * 64},
		{Policy{Layout: LayoutFixed, SlotSectors: 1}, 1024},
		{Policy{Layout: LayoutPacked}, 1024 * 255},
		{Policy{Layout: LayoutFixed, SlotSectors: 64, Writes: WritesStateful}, 1024*64 + 510},
		{Policy{Layout: LayoutPacked, Writes: WritesStateful}, 1024*255 + 510},
	}
	for _, test := range tests {
		if got := test.policy.ZoneSectors(); got != test.zone {
			t.Errorf("%+v: zone = %d sectors, want %d", test.policy, got, test.zone)
		}
		if got, want := test.policy.FileSize(), 8192+test.zone*4096; got != want {
			t.Errorf("%+v: size = %d, want %d", test.policy, got, want)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	for _, policy := range []Policy{
		{Layout: LayoutFixed, SlotSectors: 0},
		{Layout: LayoutFixed, SlotSectors: 256},
		{Layout: LayoutKind(9)},
		{Layout: LayoutPacked, Writes: WriteMode(9)},
	} {
		if err := policy.Validate(); err == nil {
			t.Errorf("Validate(%+v) succeeded", policy)
		}
	}
	if err := (Policy{Layout: LayoutPacked}).Validate(); err != nil {
		t.Errorf("packed layout ignores slot sectors: %v", err)
	}
}

func TestParsePolicyNames(t *testing.T) {
	if kind, err := ParseLayoutKind("packed"); err != nil || kind != LayoutPacked {
		t.Errorf("ParseLayoutKind(packed) = %v, %v", kind, err)
	}
	if _, err := ParseLayoutKind("sparse"); err == nil {
		t.Error("ParseLayoutKind accepted an unknown layout")
	}
	if mode, err := ParseWriteMode("stateful"); err != nil || mode != WritesStateful {
		t.Errorf("ParseWriteMode(stateful) = %v, %v", mode, err)
	}
	if _, err := ParseWriteMode("append"); err == nil {
		t.Error("ParseWriteMode accepted an unknown mode")
	}
}
