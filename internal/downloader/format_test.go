package downloader

import "testing"

func progressive(height int, bitrate float64, container, id string) CandidateFormat {
	return CandidateFormat{
		URL:       "https://cdn.example/" + id,
		Height:    height,
		Bitrate:   bitrate,
		Container: container,
		HasVideo:  true,
		HasAudio:  true,
		FormatID:  id,
	}
}

func TestPickBestFormatBitrateOutweighsDistance(t *testing.T) {
	candidates := []CandidateFormat{
		progressive(480, 1000, "mp4", "a"),
		progressive(720, 800, "webm", "b"),
	}
	best := PickBestFormat(candidates, 720)
	if best == nil {
		t.Fatalf("expected a format")
	}
	// 2000-240+1000+30 = 2790 vs 2000-0+800 = 2800
	if best.FormatID != "b" {
		t.Fatalf("expected 720p webm, got %s", best.FormatID)
	}
}

func TestPickBestFormatNeverUpscales(t *testing.T) {
	candidates := []CandidateFormat{
		progressive(1080, 5000, "mp4", "hi"),
		progressive(2160, 9000, "mp4", "uhd"),
	}
	if best := PickBestFormat(candidates, 720); best != nil {
		t.Fatalf("expected nil when only taller formats exist, got %s", best.FormatID)
	}

	candidates = append(candidates, progressive(360, 300, "mp4", "lo"))
	for _, target := range []int{360, 720, 1080} {
		best := PickBestFormat(candidates, target)
		if best == nil {
			t.Fatalf("target %d: expected a format", target)
		}
		if best.Height > target {
			t.Fatalf("target %d: picked height %d", target, best.Height)
		}
	}
}

func TestPickBestFormatSkipsUnusableAndAdaptive(t *testing.T) {
	videoOnly := progressive(720, 3000, "mp4", "video-only")
	videoOnly.HasAudio = false
	noURL := progressive(720, 3000, "mp4", "ciphered")
	noURL.URL = ""
	noHeight := progressive(0, 3000, "mp4", "audio")

	candidates := []CandidateFormat{videoOnly, noURL, noHeight, progressive(360, 100, "mp4", "ok")}
	best := PickBestFormat(candidates, 720)
	if best == nil || best.FormatID != "ok" {
		t.Fatalf("expected only the progressive format to qualify, got %+v", best)
	}
}

func TestPickBestFormatEmpty(t *testing.T) {
	if PickBestFormat(nil, 720) != nil {
		t.Fatalf("expected nil for no candidates")
	}
}

func TestPickBestFormatDeterministic(t *testing.T) {
	candidates := []CandidateFormat{
		progressive(720, 500, "webm", "first"),
		progressive(720, 470, "mp4", "second"),
		progressive(720, 500, "webm", "third"),
	}
	want := PickBestFormat(candidates, 720)
	if want == nil || want.FormatID != "second" {
		t.Fatalf("expected mp4 tie-break winner, got %+v", want)
	}
	for i := 0; i < 10; i++ {
		got := PickBestFormat(candidates, 720)
		if got == nil || *got != *want {
			t.Fatalf("run %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestPickBestFormatReturnsCopy(t *testing.T) {
	candidates := []CandidateFormat{progressive(360, 100, "mp4", "x")}
	best := PickBestFormat(candidates, 360)
	best.URL = "mutated"
	if candidates[0].URL == "mutated" {
		t.Fatalf("PickBestFormat must not alias its input")
	}
}

func TestAvailableQualities(t *testing.T) {
	candidates := []CandidateFormat{
		progressive(360, 300, "mp4", "18"),
		progressive(720, 1500, "", "22"),
	}
	options := AvailableQualities(candidates)
	if len(options) != 4 {
		t.Fatalf("expected one option per supported quality, got %d", len(options))
	}
	if options[0].Quality != "360p" || options[0].FormatID != "18" {
		t.Fatalf("unexpected 360p option: %+v", options[0])
	}
	if options[1].Quality != "720p" || options[1].Ext != "mp4" || options[1].Height != 720 {
		t.Fatalf("unexpected 720p option: %+v", options[1])
	}
	if options[3].Quality != "2160p" || options[3].FormatID != "22" {
		t.Fatalf("expected 2160p to fall back to best available, got %+v", options[3])
	}

	if got := AvailableQualities(nil); len(got) != 0 {
		t.Fatalf("expected no options, got %d", len(got))
	}
}

func TestParseQuality(t *testing.T) {
	cases := map[string]Quality{
		"":      Quality720p,
		"360p":  Quality360p,
		"720P":  Quality720p,
		"1080p": Quality1080p,
		"4k":    Quality2160p,
		"2160p": Quality2160p,
	}
	for input, want := range cases {
		got, err := ParseQuality(input)
		if err != nil {
			t.Fatalf("ParseQuality(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseQuality(%q) = %s, want %s", input, got, want)
		}
	}
	for _, bad := range []string{"480p", "best", "8k"} {
		_, err := ParseQuality(bad)
		if err == nil {
			t.Fatalf("expected error for %q", bad)
		}
		if CategoryOf(err) != CategoryInvalidQuality {
			t.Fatalf("expected invalid_quality for %q, got %s", bad, CategoryOf(err))
		}
	}
}

func TestQualityMappings(t *testing.T) {
	if Quality2160p.Height() != 2160 || Quality2160p.ResolverValue() != "2160" {
		t.Fatalf("unexpected 2160p mapping")
	}
	if Quality360p.ResolverValue() != "360" {
		t.Fatalf("unexpected 360p resolver value")
	}
	if got := QualityForHeight(720); got != "720p" {
		t.Fatalf("QualityForHeight(720) = %q", got)
	}
	for height, want := range map[int]string{480: "480p", 1440: "1440p", 1280: "1280p", 240: "240p", 0: ""} {
		if got := QualityForHeight(height); got != want {
			t.Fatalf("QualityForHeight(%d) = %q, want %q", height, got, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for raw, want := range map[string]MediaFormat{"": FormatVideo, "MP4": FormatVideo, "mp3": FormatAudio, " audio ": FormatAudio, "m4a": FormatAudio} {
		got, err := ParseFormat(raw)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseFormat("flac"); CategoryOf(err) != CategoryInvalidQuality {
		t.Fatalf("expected invalid_quality for flac, got %v", err)
	}
}

func TestPickBestAudio(t *testing.T) {
	candidates := []CandidateFormat{
		{URL: "https://cdn.example/18", Height: 360, Container: "mp4", HasVideo: true, HasAudio: true, FormatID: "18"},
		{URL: "https://cdn.example/251", Bitrate: 160, Container: "webm", HasAudio: true, FormatID: "251"},
		{URL: "https://cdn.example/139", Bitrate: 48, Container: "m4a", HasAudio: true, FormatID: "139"},
		{URL: "https://cdn.example/140", Bitrate: 129, Container: "m4a", HasAudio: true, FormatID: "140"},
		{URL: "", Bitrate: 300, Container: "m4a", HasAudio: true, FormatID: "dead"},
	}
	if got := PickBestAudio(candidates); got == nil || got.FormatID != "140" {
		t.Fatalf("expected m4a 140, got %+v", got)
	}
	if got := PickBestAudio(candidates[:2]); got == nil || got.FormatID != "251" {
		t.Fatalf("expected webm fallback, got %+v", got)
	}
	if got := PickBestAudio(candidates[:1]); got != nil {
		t.Fatalf("expected nil without audio-only streams, got %+v", got)
	}
}
