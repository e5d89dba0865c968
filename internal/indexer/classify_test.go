package indexer

import (
	"path/filepath"
	"testing"

	"media-assistant/internal/library"
)

func TestClassify(t *testing.T) {
	tv := library.Library{ID: 1, CollectionType: library.CollectionTVShows}
	movies := library.Library{ID: 2, CollectionType: library.CollectionMovies}
	mixed := library.Library{ID: 3}
	root := filepath.FromSlash("/media/lib")

	tests := []struct {
		name     string
		lib      library.Library
		rel      string
		wantOK   bool
		want     library.ItemType
		extra    library.ExtraType
		season   int
		episode  int
		seasonIn string
		owner    string
	}{
		{
			name: "episode in season folder", lib: tv, rel: "Show/Season 1/Show S01E02.mkv",
			wantOK: true, want: library.TypeEpisode, season: 1, episode: 2, seasonIn: "Show/Season 1",
		},
		{
			name: "season folder wins over name", lib: tv, rel: "Show/Season 3/Show S01E02.mkv",
			wantOK: true, want: library.TypeEpisode, season: 3, episode: 2, seasonIn: "Show/Season 3",
		},
		{
			name: "episode in series folder gets virtual season", lib: tv, rel: "Show/Show s2e10.mp4",
			wantOK: true, want: library.TypeEpisode, season: 2, episode: 10, seasonIn: "Show/Season 2",
		},
		{
			name: "cross pattern", lib: mixed, rel: "Show/Show 1x05.mkv",
			wantOK: true, want: library.TypeEpisode, season: 1, episode: 5, seasonIn: "Show/Season 1",
		},
		{
			name: "specials", lib: tv, rel: "Show/Specials/03 - Pilot.mkv",
			wantOK: true, want: library.TypeEpisode, season: 0, episode: 3, seasonIn: "Show/Specials",
		},
		{
			name: "unnamed file in tv library", lib: tv, rel: "Show/Pilot.mkv",
			wantOK: true, want: library.TypeEpisode, season: 1, episode: 0, seasonIn: "Show/Season 1",
		},
		{
			name: "unnamed file in mixed library", lib: mixed, rel: "Home/Birthday.mkv",
			wantOK: true, want: library.TypeVideo,
		},
		{
			name: "movie", lib: movies, rel: "Film (2020)/Film.mkv",
			wantOK: true, want: library.TypeMovie,
		},
		{
			name: "movie extra", lib: movies, rel: "Film (2020)/Featurettes/Making Of.mkv",
			wantOK: true, want: library.TypeVideo, extra: library.ExtraFeaturette, owner: "Film (2020)",
		},
		{
			name: "series extra", lib: tv, rel: "Show/Behind The Scenes/On Set.mkv",
			wantOK: true, want: library.TypeVideo, extra: library.ExtraBehindTheScenes, owner: "Show",
		},
		{
			name: "season trailer", lib: tv, rel: "Show/Season 1/Trailers/Teaser.strm",
			wantOK: true, want: library.TypeVideo, extra: library.ExtraTrailer, owner: "Show/Season 1",
		},
		{name: "subtitle", lib: tv, rel: "Show/Season 1/Show S01E02.en.srt"},
		{name: "artwork", lib: movies, rel: "Film/poster.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := Classify(tt.lib, root, filepath.Join(root, filepath.FromSlash(tt.rel)))
			if ok != tt.wantOK {
				t.Fatalf("Classify() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if e.Type != tt.want {
				t.Errorf("Type = %q, want %q", e.Type, tt.want)
			}
			if e.ExtraType != tt.extra {
				t.Errorf("ExtraType = %q, want %q", e.ExtraType, tt.extra)
			}
			if tt.want == library.TypeEpisode {
				if e.SeasonNumber != tt.season || e.EpisodeNumber != tt.episode {
					t.Errorf("season/episode = %d/%d, want %d/%d", e.SeasonNumber, e.EpisodeNumber, tt.season, tt.episode)
				}
				if want := filepath.Join(root, filepath.FromSlash(tt.seasonIn)); e.SeasonDir != want {
					t.Errorf("SeasonDir = %q, want %q", e.SeasonDir, want)
				}
			}
			if tt.owner != "" {
				if want := filepath.Join(root, filepath.FromSlash(tt.owner)); e.OwnerDir != want {
					t.Errorf("OwnerDir = %q, want %q", e.OwnerDir, want)
				}
			}
		})
	}
}

func TestClassifyShortcut(t *testing.T) {
	lib := library.Library{CollectionType: library.CollectionMovies}
	e, ok := Classify(lib, "/media", "/media/Film/Film.strm")
	if !ok || !e.IsShortcut {
		t.Fatalf("expected a shortcut movie, got %+v (ok=%v)", e, ok)
	}
	if e.Name() != "Film" {
		t.Errorf("Name() = %q, want Film", e.Name())
	}
}

func TestClassifyOutsideLocation(t *testing.T) {
	if _, ok := Classify(library.Library{}, "/media/tv", "/media/movies/a.mkv"); ok {
		t.Error("files outside the location must be rejected")
	}
}
