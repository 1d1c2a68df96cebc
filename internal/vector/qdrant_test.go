package vector

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   *Filter
		wantNil  bool
		wantMust int
	}{
		{"nil", nil, true, 0},
		{"empty", &Filter{}, true, 0},
		{"pages_only", &Filter{Pages: []int{1, 2}}, false, 1},
		{"images_only", &Filter{HasImages: boolPtr(true)}, false, 1},
		{"both", &Filter{Pages: []int{3}, HasImages: boolPtr(false)}, false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := buildFilter(tt.filter)
			if tt.wantNil {
				if f != nil {
					t.Fatalf("expected nil filter, got %v", f)
				}
				return
			}
			if f == nil {
				t.Fatal("expected non-nil filter")
			}
			if len(f.Must) != tt.wantMust {
				t.Errorf("got %d conditions, want %d", len(f.Must), tt.wantMust)
			}
		})
	}
}

func TestBuildFilter_PageSet(t *testing.T) {
	f := buildFilter(&Filter{Pages: []int{4, 7}})
	cond := f.Must[0].GetField()
	if cond.Key != "page" {
		t.Errorf("key = %q, want page", cond.Key)
	}
	ints := cond.Match.GetIntegers().GetIntegers()
	if len(ints) != 2 || ints[0] != 4 || ints[1] != 7 {
		t.Errorf("integers = %v, want [4 7]", ints)
	}
}

func TestBuildFilter_HasImages(t *testing.T) {
	f := buildFilter(&Filter{HasImages: boolPtr(true)})
	cond := f.Must[0].GetField()
	if cond.Key != "has_images" {
		t.Errorf("key = %q, want has_images", cond.Key)
	}
	if !cond.Match.GetBoolean() {
		t.Error("expected boolean match true")
	}
}

func TestPointID_RoundTrip(t *testing.T) {
	tests := []struct {
		id      string
		numeric bool
	}{
		{"0", true},
		{"42", true},
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p := pointID(tt.id)
			if tt.numeric {
				if _, ok := p.PointIdOptions.(*pb.PointId_Num); !ok {
					t.Errorf("expected numeric point id for %q", tt.id)
				}
			} else {
				if _, ok := p.PointIdOptions.(*pb.PointId_Uuid); !ok {
					t.Errorf("expected uuid point id for %q", tt.id)
				}
			}
			if got := pointIDString(p); got != tt.id {
				t.Errorf("round trip = %q, want %q", got, tt.id)
			}
		})
	}
}
