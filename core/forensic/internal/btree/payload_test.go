package btree

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestLocalPayloadBoundaries(t *testing.T) {
	const u = 4096
	x := MaxLocal(u) // 4061
	m := MinLocal(u) // 489

	if x != 4061 || m != 489 {
		t.Fatalf("MaxLocal/MinLocal = %d/%d, want 4061/489", x, m)
	}

	tests := []struct {
		name string
		p    int
		want int
	}{
		{"p equals x stays inline", x, x},
		{"p is x+1 falls back to m", x + 1, m},
		{"p equals m stays inline", m, m},
		{"p is m+(u-4) gives k=m", m + (u - 4), m},
		{"large payload uses k", 10000, m + (10000-m)%(u-4)},
		{"small payload", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LocalPayload(tt.p, u); got != tt.want {
				t.Errorf("LocalPayload(%d, %d) = %d, want %d", tt.p, u, got, tt.want)
			}
		})
	}
}

func TestLocalPayloadSmallPages(t *testing.T) {
	// 512-byte pages: x=477, m=(500*32/255)-23=39
	if got := LocalPayload(478, 512); got != 39 {
		t.Errorf("LocalPayload(478, 512) = %d, want 39", got)
	}
	if got := LocalPayload(647, 512); got != 139 {
		t.Errorf("LocalPayload(647, 512) = %d, want 139", got)
	}
}

func TestLocalIndexPayload(t *testing.T) {
	// 512-byte pages: x=(500*64/255)-23=102, m=39
	if x := MaxLocalIndex(512); x != 102 {
		t.Fatalf("MaxLocalIndex(512) = %d, want 102", x)
	}
	if x := MaxLocalIndex(4096); x != 1002 {
		t.Fatalf("MaxLocalIndex(4096) = %d, want 1002", x)
	}
	tests := []struct {
		p, want int
	}{
		{102, 102},
		{103, 39},
		{200, 39},
		{39 + 508 + 50, 89},
	}
	for _, tt := range tests {
		if got := LocalIndexPayload(tt.p, 512); got != tt.want {
			t.Errorf("LocalIndexPayload(%d, 512) = %d, want %d", tt.p, got, tt.want)
		}
	}
	// a payload the table split keeps inline spills on an index page
	if LocalPayload(200, 512) != 200 {
		t.Error("table split of 200 bytes should stay inline")
	}
}

func TestOverflowPageCount(t *testing.T) {
	tests := []struct {
		p, u, want int
	}{
		{100, 4096, 0},
		{4061, 4096, 0},
		{4062, 4096, 1},
		{489 + 2*4092, 4096, 2},
	}
	for _, tt := range tests {
		if got := OverflowPageCount(tt.p, tt.u); got != tt.want {
			t.Errorf("OverflowPageCount(%d, %d) = %d, want %d", tt.p, tt.u, got, tt.want)
		}
	}
}

func TestLocalPayloadProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("inline bytes stay within [min(p, m), x]", prop.ForAll(
		func(p int, shift int) bool {
			u := 512 << shift
			got := LocalPayload(p, u)
			x, m := MaxLocal(u), MinLocal(u)
			if p <= x {
				return got == p
			}
			return got >= m && got <= x
		},
		gen.IntRange(1, 1<<20),
		gen.IntRange(0, 7),
	))

	properties.Property("spilled bytes fill whole overflow pages except the last", prop.ForAll(
		func(p int) bool {
			const u = 1024
			local := LocalPayload(p, u)
			if local == p {
				return true
			}
			rest := p - local
			return OverflowPageCount(p, u)*(u-4) >= rest && (OverflowPageCount(p, u)-1)*(u-4) < rest
		},
		gen.IntRange(1, 1<<18),
	))

	properties.TestingRun(t)
}
