package nowplaying

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/stream-widgets/backend/state"
)

func TestExtractAlbumFromArtist(t *testing.T) {
	cases := []struct {
		raw, artist, album string
	}{
		{"Artist [ALBUM:Album Name]", "Artist", "Album Name"},
		{"Artist — Album Name", "Artist", "Album Name"},
		{"Artist – Album Name", "Artist", "Album Name"},
		{"Artist - Album Name", "Artist", "Album Name"},
		{"SingleArtist", "SingleArtist", ""},
		{"Jay-Z", "Jay-Z", ""}, // bare hyphen never splits
		{"", "", ""},
		// the explicit tag wins over a dash in the artist part
		{"AC - DC [ALBUM:Back in Black]", "AC - DC", "Back in Black"},
	}
	for _, tc := range cases {
		artist, album := ExtractAlbumFromArtist(tc.raw)
		if artist != tc.artist || album != tc.album {
			t.Errorf("ExtractAlbumFromArtist(%q) = (%q, %q), want (%q, %q)",
				tc.raw, artist, album, tc.artist, tc.album)
		}
	}
}

func TestPickSession_PrefersPlaying(t *testing.T) {
	sessions := []Session{
		{AppID: "paused.app"},
		{AppID: "playing.app", Playing: true},
	}
	got, ok := pickSession(sessions)
	if !ok || got.AppID != "playing.app" {
		t.Fatalf("picked %+v", got)
	}

	got, ok = pickSession(sessions[:1])
	if !ok || got.AppID != "paused.app" {
		t.Fatalf("without a playing session, want first; got %+v", got)
	}

	if _, ok := pickSession(nil); ok {
		t.Fatal("empty session list reported a pick")
	}
}

// fakeSource scripts session snapshots and counts thumbnail writes.
type fakeSource struct {
	mu         sync.Mutex
	sessions   []Session
	thumbCalls int
	thumbData  []byte
}

func (f *fakeSource) Sessions(ctx context.Context) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Session(nil), f.sessions...), nil
}

func (f *fakeSource) WriteThumbnail(ctx context.Context, s Session, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thumbCalls++
	if len(f.thumbData) == 0 {
		return false, nil
	}
	return true, os.WriteFile(path, f.thumbData, 0o644)
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.thumbCalls
}

func TestCycle_ArtWrittenOnceUntilTrackChanges(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		sessions:  []Session{{AppID: "app", Title: "Song", Artist: "Artist", Playing: true, HasThumbnail: true}},
		thumbData: []byte("png-bytes"),
	}
	hub := state.New()
	p := New(hub, src, dir, time.Second)

	for i := 0; i < 3; i++ {
		if err := p.cycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	if got := src.calls(); got != 1 {
		t.Fatalf("thumbnail written %d times for an unchanged track, want 1", got)
	}

	src.mu.Lock()
	src.sessions[0].Title = "Next Song"
	src.mu.Unlock()
	if err := p.cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := src.calls(); got != 2 {
		t.Fatalf("thumbnail calls after track change = %d, want 2", got)
	}

	np := hub.NowPlaying()
	if np.Title != "Next Song" || !np.HasArt || np.ArtURL != "/art/"+ArtFilename {
		t.Fatalf("snapshot = %+v", np)
	}
}

func TestCycle_NoSessionResetsArtAndPublishesEmpty(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	hub := state.New()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	p := New(hub, src, dir, time.Second)
	if err := p.cycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	np := hub.NowPlaying()
	if np.Title != "" || np.Playing || np.HasArt {
		t.Fatalf("snapshot = %+v, want empty state", np)
	}
	if np.UpdatedUnix == 0 {
		t.Fatal("empty snapshot missing heartbeat timestamp")
	}

	select {
	case ev := <-sub.C:
		if ev.Type != "nowplaying" {
			t.Fatalf("event type = %q", ev.Type)
		}
	default:
		t.Fatal("cycle did not broadcast")
	}

	data, err := os.ReadFile(filepath.Join(dir, ArtFilename))
	if err != nil {
		t.Fatalf("album art missing: %v", err)
	}
	if string(data) != string(placeholderPNG) {
		t.Fatal("album art is not the placeholder")
	}
}

func TestCycle_AlbumFromArtistHint(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		sessions: []Session{{AppID: "app", Title: "Song", Artist: "Artist — The Album", Playing: true}},
	}
	hub := state.New()
	p := New(hub, src, dir, time.Second)
	if err := p.cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	np := hub.NowPlaying()
	if np.Artist != "Artist" || np.Album != "The Album" {
		t.Fatalf("snapshot = %+v, want album extracted from artist", np)
	}
}

func TestEnsureArtFiles(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureArtFiles(dir); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{ArtFilename, PlaceholderFilename} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	thumb := filepath.Join(dir, "cover.png")
	if err := os.WriteFile(thumb, []byte("art"), 0o644); err != nil {
		t.Fatal(err)
	}
	payload := `[{"app_id":"spotify","title":"Song","artist":"Artist","playing":true,"thumbnail":"` + thumb + `"}]`
	if err := os.WriteFile(filepath.Join(dir, SessionFilename), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &FileSource{Dir: dir}
	sessions, err := src.Sessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || !sessions[0].HasThumbnail || sessions[0].Title != "Song" {
		t.Fatalf("sessions = %+v", sessions)
	}

	out := filepath.Join(dir, "out.png")
	wrote, err := src.WriteThumbnail(context.Background(), sessions[0], out)
	if err != nil || !wrote {
		t.Fatalf("WriteThumbnail = %v, %v", wrote, err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "art" {
		t.Fatalf("copied art = %q", data)
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	src := &FileSource{Dir: t.TempDir()}
	sessions, err := src.Sessions(context.Background())
	if err != nil || sessions != nil {
		t.Fatalf("missing file: sessions=%v err=%v, want nil/nil", sessions, err)
	}
}

func TestRun_CancellationIsNotAnError(t *testing.T) {
	hub := state.New()
	p := New(hub, &fakeSource{}, t.TempDir(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v on cancellation, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
