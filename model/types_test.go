package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messages(domain string, n int) []Message {
	out := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Message{ID: fmt.Sprintf("%s-%d", domain, i), Domain: domain})
	}
	return out
}

func TestGroupingSortedByCountDesc(t *testing.T) {
	var msgs []Message
	msgs = append(msgs, messages("five.com", 5)...)
	msgs = append(msgs, messages("one.com", 1)...)
	msgs = append(msgs, messages("three.com", 3)...)

	sorted := GroupByDomain(msgs).Sorted()
	require.Len(t, sorted, 3)

	counts := []int{sorted[0].Count, sorted[1].Count, sorted[2].Count}
	assert.Equal(t, []int{5, 3, 1}, counts)
	assert.Equal(t, "five.com", sorted[0].Domain)
	assert.Equal(t, "one.com", sorted[2].Domain)
}

func TestGroupingSortedTiesAreStable(t *testing.T) {
	g := Grouping{
		"b.com": messages("b.com", 2),
		"a.com": messages("a.com", 2),
		"c.com": messages("c.com", 4),
	}
	for i := 0; i < 10; i++ {
		sorted := g.Sorted()
		assert.Equal(t, "c.com", sorted[0].Domain)
		assert.Equal(t, "a.com", sorted[1].Domain)
		assert.Equal(t, "b.com", sorted[2].Domain)
	}
}

func TestGroupingCountAndMessages(t *testing.T) {
	g := GroupByDomain(append(messages("x.io", 2), messages("y.io", 3)...))
	assert.Equal(t, 5, g.Count())

	flat := g.Messages()
	require.Len(t, flat, 5)
	assert.Equal(t, "y.io", flat[0].Domain)
}

func TestFetchProgressStatus(t *testing.T) {
	tests := []struct {
		name string
		in   FetchProgress
		want Status
	}{
		{"idle", FetchProgress{}, StatusComplete},
		{"fetching", FetchProgress{IsFetching: true}, StatusFetching},
		{"fetching hides old error", FetchProgress{IsFetching: true, LastError: "boom"}, StatusFetching},
		{"error", FetchProgress{LastError: "boom"}, StatusError},
		{"paused", FetchProgress{IsPaused: true}, StatusPaused},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Status())
		})
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    ActionKind
		wantErr bool
	}{
		{"read", ActionRead, false},
		{"Archive", ActionArchive, false},
		{"delete", ActionTrash, false},
		{"trash", ActionTrash, false},
		{"spam", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		got, err := ParseAction(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}
