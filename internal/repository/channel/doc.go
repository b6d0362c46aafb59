// Package channel implements persistence for the stable-channel record.
//
// The FileRepository keeps the currently promoted version as a single line of
// plain text and replaces it atomically, so readers never see a partial write.
package channel
