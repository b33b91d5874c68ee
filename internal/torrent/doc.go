// Package torrent adapts qBittorrent to the job pipeline.
//
// The adapter submits validated torrent payloads, polls transfer state,
// applies seed limits and resumes torrents the backend has stopped. Backend
// sessions are cached per (host, credential) scope in a SessionPool so two
// configured accounts never share a login, and paths reported by the backend
// are only trusted after pathmap confirms they sit under the configured
// download root.
package torrent
