package stt

// TranscriptionSegment is one aligned, absolute-timestamped piece of text
// in the final transcript, matching the data model's TranscriptionSegment.
type TranscriptionSegment struct {
	Index        int
	StartSeconds float64
	EndSeconds   float64
	Text         string
}

// alignSegment converts a vendor's per-clip result (relative offsets, or
// none at all) into absolute TranscriptionSegments by adding the audio
// segment's own StartSeconds.
func alignSegment(index int, clipStart, clipEnd float64, vendor VendorResult) []TranscriptionSegment {
	cleanedFullText := normalizeWhitespace(stripVendorMarkers(vendor.Text))

	if len(vendor.Segments) == 0 {
		if cleanedFullText == "" {
			return nil
		}
		return []TranscriptionSegment{{
			Index:        index,
			StartSeconds: clipStart,
			EndSeconds:   clipEnd,
			Text:         cleanedFullText,
		}}
	}

	out := make([]TranscriptionSegment, 0, len(vendor.Segments))
	for _, vs := range vendor.Segments {
		text := normalizeWhitespace(stripVendorMarkers(vs.Text))
		if text == "" {
			continue
		}
		start := clipStart + vs.StartSeconds
		end := clipStart + vs.EndSeconds
		if end > clipEnd {
			end = clipEnd
		}
		if start > end {
			start = end
		}
		out = append(out, TranscriptionSegment{StartSeconds: start, EndSeconds: end, Text: text})
	}
	// Guarantee monotonic non-overlap: clamp each segment's start to the
	// previous segment's end. Index is assigned later once every clip's
	// segments are concatenated.
	prevEnd := clipStart
	for i := range out {
		if out[i].StartSeconds < prevEnd {
			out[i].StartSeconds = prevEnd
		}
		if out[i].EndSeconds < out[i].StartSeconds {
			out[i].EndSeconds = out[i].StartSeconds
		}
		prevEnd = out[i].EndSeconds
	}
	return out
}
