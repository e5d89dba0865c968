/*
Package options loads and saves the plugin options document.

Options live in a TOML file (OPTIONS_FILE, default $DATA_DIR/options.toml):

	[general]
	max_concurrent_count = 4
	catchup_task_scope = "Fingerprint,VideoThumbnail"

	[media_info_extract]
	library_scope = "-1,8"
	include_extra = true

	[intro_skip]
	marker_enabled_library_scope = "5"
	library_scope = "-1"
	intro_detection_fingerprint_minutes = 10

	[[libraries]]
	id = 5
	name = "TV"
	collection_type = "tvshows"
	locations = ["/media/tv"]
	enable_marker_detection = true

A Store publishes the current snapshot atomically and notifies listeners on
every save, so scope resolution and the fingerprint timeout follow the
configuration without a restart.
*/
package options
