package selection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-assistant/internal/library"
	"media-assistant/internal/options"
)

func TestServiceUpdatesEveryPipelineScope(t *testing.T) {
	f := newFixture(t, func(o *options.Options) {
		o.IntroSkip.MarkerEnabledLibraryScope = "6"
		o.MediaInfoExtract.LibraryScope = "7"
	})
	ctx := context.Background()

	svc := NewService(f.selector, f.fingerprint(), NewIntroPreExtractPipeline(),
		NewThumbnailPipeline(nil), NewSubtitlePipeline(nil), NewMediaInfoPipeline())
	require.NoError(t, svc.UpdateScopeFromConfiguration(ctx))

	assert.True(t, svc.Fingerprint.Scope().InScope("/media/anime/Gamma"))
	assert.False(t, svc.Fingerprint.Scope().InScope("/media/tv/Alpha"))
	assert.True(t, svc.Thumbnail.Scope().InScope("/media/movies/Film"))
	assert.True(t, svc.MediaInfo.Scope().InScope("/media/movies/Film"))

	p, ok := svc.Pipeline(SubtitlePipelineName)
	require.True(t, ok)
	assert.Same(t, svc.Subtitle, p)
	_, ok = svc.Pipeline("Unknown")
	assert.False(t, ok)
}

func TestServiceMediaInfoAndPreExtract(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	unprobed := f.tv.Episodes[0][0]
	unprobed.HasAudioStream = false
	unprobed.HasMediaInfo = false
	f.idx.Put(unprobed)

	svc := NewService(f.selector, nil, NewIntroPreExtractPipeline(), nil, nil, NewMediaInfoPipeline())

	pre, err := svc.SelectIntroPreExtractWork(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{unprobed.ID}, itemIDs(pre))

	info, err := svc.SelectMediaInfoWork(ctx, ScheduledTask, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{unprobed.ID}, itemIDs(info))

	none, err := svc.SelectFingerprintWork(ctx, ScheduledTask, nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSubtitlePipelineUsesChangePredicate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	target := f.tv2.Episodes[0][0]
	changed := func(_ context.Context, i library.Item) (bool, error) {
		return i.ID == target.ID, nil
	}
	svc := NewService(f.selector, nil, nil, nil, NewSubtitlePipeline(changed), nil)

	got, err := svc.SelectSubtitleWork(ctx, ScheduledTask, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{target.ID}, itemIDs(got))

	got, err = svc.SelectItem(ctx, svc.Subtitle, f.tv.Episodes[0][0])
	require.NoError(t, err)
	assert.Empty(t, got)
}
