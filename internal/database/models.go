package database

import "time"

// IndexStats summarizes the most recent index run.
type IndexStats struct {
	TotalItems    int       `json:"totalItems"`
	TotalSeries   int       `json:"totalSeries"`
	TotalEpisodes int       `json:"totalEpisodes"`
	TotalMovies   int       `json:"totalMovies"`
	TotalExtras   int       `json:"totalExtras"`
	LastIndexed   time.Time `json:"lastIndexed"`
	IndexDuration string    `json:"indexDuration"`
}
