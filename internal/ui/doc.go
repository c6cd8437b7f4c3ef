// Package ui implements the live migration display: a two-panel
// bubbletea program, Migration on the left and Download on the right,
// refreshed at a fixed tick rate while a run is in progress.
//
// The Migration panel shows one row per active worker (a progress bar,
// cur/total, and the track currently being resolved), aggregate counts,
// and a rolling-window ETA. The Download panel shows the completed and
// failed download counts and the playlist whose download started last;
// it has no per-worker rows and no ETA.
//
// Both panels carry a bounded activity log. [Model] implements
// bubbletea's Init/Update/View; callers feed it events from
// [pipeline.Pipeline] and [downloader.Orchestrator] via [Program.Send].
package ui
