// Package postprocess turns a completed download into a library artifact.
//
// Audio files are merged or remuxed into a single .m4b with ffmpeg, tagged,
// and given embedded cover art; ebooks are copied as-is. Every subprocess
// runs under a wall-clock budget, work happens in a per-job staging
// directory that is always removed, and the artifact is moved into
// <library>/<author>/<title>/<title>.<ext> atomically. Source files are
// never modified because the torrent backend may still be seeding them.
package postprocess
