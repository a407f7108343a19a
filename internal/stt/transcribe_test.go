package stt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhuguadundan/videowhisper/internal/audio"
)

type fakeVendor struct {
	responses map[string]func() (VendorResult, error)
	calls     map[string]int
}

func (f *fakeVendor) Transcribe(_ context.Context, audioPath, _, _ string) (VendorResult, error) {
	f.calls[audioPath]++
	return f.responses[audioPath]()
}

func TestTranscribeAll_ShortAudioSingleSegment(t *testing.T) {
	segs := []audio.Segment{{Index: 0, Path: "a.mp3", StartSeconds: 0, EndSeconds: 120}}
	vendor := &fakeVendor{
		calls: map[string]int{},
		responses: map[string]func() (VendorResult, error){
			"a.mp3": func() (VendorResult, error) { return VendorResult{Text: "hello world"}, nil },
		},
	}

	result, err := TranscribeAll(context.Background(), segs, vendor, Config{ShortAudioMaxRetries: 3}, nil)
	require.NoError(t, err)
	require.Len(t, result.Segments, 1)
	require.Equal(t, 0.0, result.Segments[0].StartSeconds)
	require.Equal(t, 120.0, result.Segments[0].EndSeconds)
	require.Equal(t, "hello world", result.FullText)
}

func TestTranscribeAll_AlignsAbsoluteTimestampsAcrossSegments(t *testing.T) {
	segs := []audio.Segment{
		{Index: 0, Path: "a.mp3", StartSeconds: 0, EndSeconds: 300},
		{Index: 1, Path: "b.mp3", StartSeconds: 300, EndSeconds: 600},
	}
	vendor := &fakeVendor{
		calls: map[string]int{},
		responses: map[string]func() (VendorResult, error){
			"a.mp3": func() (VendorResult, error) {
				return VendorResult{Segments: []VendorSegment{{StartSeconds: 0, EndSeconds: 10, Text: "first"}}}, nil
			},
			"b.mp3": func() (VendorResult, error) {
				return VendorResult{Segments: []VendorSegment{{StartSeconds: 0, EndSeconds: 10, Text: "second"}}}, nil
			},
		},
	}

	result, err := TranscribeAll(context.Background(), segs, vendor, Config{MaxConsecutiveFailures: 3}, nil)
	require.NoError(t, err)
	require.Len(t, result.Segments, 2)
	require.Equal(t, 0.0, result.Segments[0].StartSeconds)
	require.Equal(t, 10.0, result.Segments[0].EndSeconds)
	require.Equal(t, 300.0, result.Segments[1].StartSeconds)
	require.Equal(t, 310.0, result.Segments[1].EndSeconds)
	require.LessOrEqual(t, result.Segments[0].EndSeconds, result.Segments[1].StartSeconds)
}

func TestTranscribeAll_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	segs := []audio.Segment{{Index: 0, Path: "a.mp3", StartSeconds: 0, EndSeconds: 10}}
	vendor := &fakeVendor{
		calls: map[string]int{},
		responses: map[string]func() (VendorResult, error){
			"a.mp3": func() (VendorResult, error) {
				attempts++
				if attempts < 2 {
					return VendorResult{}, &Error{Retryable: true, Err: context.DeadlineExceeded}
				}
				return VendorResult{Text: "ok"}, nil
			},
		},
	}

	result, err := TranscribeAll(context.Background(), segs, vendor, Config{ShortAudioMaxRetries: 3, RetrySleepLong: time.Millisecond}, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", result.FullText)
	require.Equal(t, 2, attempts)
}

func TestTranscribeAll_AbortsOnConsecutiveFailures(t *testing.T) {
	segs := []audio.Segment{
		{Index: 0, Path: "a.mp3", StartSeconds: 0, EndSeconds: 300},
		{Index: 1, Path: "b.mp3", StartSeconds: 300, EndSeconds: 600},
		{Index: 2, Path: "c.mp3", StartSeconds: 600, EndSeconds: 900},
		{Index: 3, Path: "d.mp3", StartSeconds: 900, EndSeconds: 1200},
		{Index: 4, Path: "e.mp3", StartSeconds: 1200, EndSeconds: 1500},
	}
	failing := func() (VendorResult, error) {
		return VendorResult{}, &Error{Retryable: false, Err: context.DeadlineExceeded}
	}
	vendor := &fakeVendor{
		calls: map[string]int{},
		responses: map[string]func() (VendorResult, error){
			"a.mp3": func() (VendorResult, error) { return VendorResult{Text: "ok"}, nil },
			"b.mp3": failing,
			"c.mp3": failing,
			"d.mp3": failing,
			"e.mp3": func() (VendorResult, error) { return VendorResult{Text: "never reached"}, nil },
		},
	}

	done := 0
	_, err := TranscribeAll(context.Background(), segs, vendor, Config{MaxConsecutiveFailures: 2, RetrySleepLong: time.Millisecond}, func(int) { done++ })
	require.Error(t, err)
	var consecErr *ErrConsecutiveFailures
	require.ErrorAs(t, err, &consecErr)
	require.Equal(t, 0, vendor.calls["e.mp3"])
	require.Equal(t, 4, done)
}

func TestStripVendorMarkersAndNormalizeWhitespace(t *testing.T) {
	in := "Hello [BGM]   world\n\nfoo   bar"
	out := normalizeWhitespace(stripVendorMarkers(in))
	require.Equal(t, "Hello world\nfoo bar", out)
}
