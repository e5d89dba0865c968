// Package thumbnail extracts chapter images from videos.
//
// For every item selected by the VideoThumbnailExtract pipeline, Generator
// grabs one frame at each 10% of the runtime with ffmpeg, fits it into a
// 320x180 JPEG with imaging and stores it as
//
//	CACHE_DIR/thumbnails/<item id>/chapter_NN.jpg
//
// The item's has_chapter_images flag is set once at least one frame was
// written. When ffmpeg is missing NewGenerator returns
// ErrGeneratorUnavailable and the pipeline selects no work.
package thumbnail
