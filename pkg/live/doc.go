// Package live implements the voice session core: the state machine that
// owns the streaming connection to the remote conversational service,
// the capture and playback pipelines, and the reconnect/pause logic.
//
// A Session coordinates three independently clocked processes - the
// microphone callback, the network connection, and speaker playback -
// without letting any of them block the others. Hardware and network
// producers deliver data through callbacks; the session reacts to events
// and is the only writer of the connection handle, the playback cursor,
// and the transcript.
package live
