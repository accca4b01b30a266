package index

import (
	"testing"
)

func TestUnionCollapsesDuplicates(t *testing.T) {
	got := Union(PostingList{3, 7}, PostingList{3, 9})
	want := PostingList{3, 7, 9}
	if !got.Equal(want) {
		t.Errorf("Union = %v, want %v", got, want)
	}
}

func TestUnionEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		a, b PostingList
		want PostingList
	}{
		{"both empty", nil, nil, PostingList{}},
		{"left empty", nil, PostingList{1, 2}, PostingList{1, 2}},
		{"right empty", PostingList{4}, nil, PostingList{4}},
		{"interleaved", PostingList{1, 4, 6}, PostingList{2, 4, 5, 9}, PostingList{1, 2, 4, 5, 6, 9}},
		{"identical", PostingList{1, 2, 3}, PostingList{1, 2, 3}, PostingList{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Union(tt.a, tt.b)
			if !got.Equal(tt.want) {
				t.Errorf("Union(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("result not strictly ascending: %v", err)
			}
		})
	}
}

func TestValidateRejectsDuplicatesAndDescent(t *testing.T) {
	if err := (PostingList{1, 1}).Validate(); err == nil {
		t.Error("expected duplicate to be rejected")
	}
	if err := (PostingList{5, 2}).Validate(); err == nil {
		t.Error("expected descending pair to be rejected")
	}
	if err := (PostingList{}).Validate(); err != nil {
		t.Errorf("empty list rejected: %v", err)
	}
}

func TestMemoryIndexSnapshotIsSorted(t *testing.T) {
	mi := NewMemoryIndex()
	mi.AddDocument(9, []string{"zeta", "award", "award"})
	mi.AddDocument(3, []string{"award", "beta"})
	mi.AddDocument(7, []string{"beta"})

	entries := mi.Snapshot()
	wantTerms := []string{"award", "beta", "zeta"}
	if len(entries) != len(wantTerms) {
		t.Fatalf("got %d entries, want %d", len(entries), len(wantTerms))
	}
	for i, e := range entries {
		if e.Term != wantTerms[i] {
			t.Errorf("entry %d term = %q, want %q", i, e.Term, wantTerms[i])
		}
	}
	if !entries[0].Postings.Equal(PostingList{3, 9}) {
		t.Errorf("award postings = %v", entries[0].Postings)
	}
	if !entries[1].Postings.Equal(PostingList{3, 7}) {
		t.Errorf("beta postings = %v", entries[1].Postings)
	}
	if mi.DocCount() != 3 || mi.PostingCount() != 5 {
		t.Errorf("DocCount=%d PostingCount=%d", mi.DocCount(), mi.PostingCount())
	}
}
