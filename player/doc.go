// Package player streams queued media URLs to an Icecast relay.
//
// A Manager owns a FIFO of URLs and at most one external streamer process.
// Enqueue starts playback when idle; each URL is resolved to a direct audio
// source (yt-dlp) and handed to the runner (ffmpeg). A monitor waits for the
// process to exit and then:
//   - advances the queue when the stream ended naturally (exit status 0),
//   - restarts the same URL after a crash while its retry budget lasts,
//     abandoning it afterwards,
//   - does nothing further when the exit was caused by Stop.
//
// Resolution and spawn failures drop the URL and move on. Stop is synchronous:
// it returns once the process is reaped and the queue is empty.
package player
