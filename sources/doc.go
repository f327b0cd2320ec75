// Package sources implements the pipeline source modules: JsonIn (file or
// stdin), Historical (batched HTTP fetch of archived data), and Realtime
// (live Kafka feed). Historical and Realtime share a bounded single-slot
// batch handoff between a background reader goroutine and the pipeline
// consumer; JsonIn reads its input directly on the pipeline's pull.
package sources
