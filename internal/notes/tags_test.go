package notes

import (
	"reflect"
	"testing"
)

func TestMergeTagsReplacesSameKind(t *testing.T) {
	prev := [][]string{
		{"I", "eip155:1:address:0xabc"},
		{"about", "old description"},
		{"website", "https://old.example"},
	}
	next := [][]string{{"about", "new description"}}

	merged := MergeTags(prev, next, "eip155:1:address:0xabc")

	aboutCount := 0
	for _, tag := range merged {
		if tag[0] == "about" {
			aboutCount++
			if tag[1] != "new description" {
				t.Errorf("about = %q, want the new value", tag[1])
			}
		}
	}
	if aboutCount != 1 {
		t.Errorf("got %d about tags, want exactly 1", aboutCount)
	}

	want := [][]string{
		{"I", "eip155:1:address:0xabc"},
		{"website", "https://old.example"},
		{"about", "new description"},
	}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("merged = %v, want %v", merged, want)
	}
}

func TestMergeTagsIdentityAlwaysFirst(t *testing.T) {
	merged := MergeTags(nil, [][]string{{"t", "defi"}}, "eip155:1:tx:0xdead")
	if len(merged) == 0 || merged[0][0] != "I" || merged[0][1] != "eip155:1:tx:0xdead" {
		t.Fatalf("first tag = %v, want the identity tag", merged)
	}
}

func TestMergeTagsIgnoresCallerIdentityTag(t *testing.T) {
	// A caller-supplied identity tag must not produce a duplicate.
	next := [][]string{{"I", "eip155:1:address:0xother"}, {"t", "nft"}}
	merged := MergeTags(nil, next, "eip155:1:address:0xabc")

	identities := 0
	for _, tag := range merged {
		if tag[0] == "I" {
			identities++
			if tag[1] != "eip155:1:address:0xabc" {
				t.Errorf("identity value = %q, want the managed URI", tag[1])
			}
		}
	}
	if identities != 1 {
		t.Errorf("got %d identity tags, want exactly 1", identities)
	}
}
