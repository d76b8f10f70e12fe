// Package pipeline runs one accident analysis end to end.
//
// It is the composition root for the analysis stages: it imports the stage
// packages (frames, detection, egomotion, direction, timeline, trafficlight,
// meta, accidenttype, fault, report) but none of them import pipeline.
// Stages run strictly in sequence. Each stage receives the typed records
// produced before it and returns its own record; nothing is looked up by
// name. Every run gets its own workspace directory, so concurrent requests
// for the same video do not share files.
package pipeline
