// Package workflow advances acquisition jobs through the status table.
//
// The Manager owns every status change: it searches the indexer, fetches and
// submits the chosen torrent, polls the transfer backend until the download
// completes and the seed policy is met, hands the content to post-processing,
// and asks the library to rescan. Each call to Advance applies at most one row
// of the transition table under a per-job lock, so API calls, the background
// poll loop and the recheck scheduler never interleave writes for one job.
//
// Cancellation is cooperative. Cancel fires the cancel func registered by an
// in-flight Advance, then takes the job lock and writes Cancelled unless the
// job is already terminal. An Advance that observes cancellation discards its
// result.
//
// Transient failures keep the job in its current status with LastError set;
// the recheck scheduler revisits them. Validation, path security, timeout and
// terminal backend failures move the job to Failed.
package workflow
