package messaging

// Subject and consumer names for the conversion pipeline.
const (
	// SubjectConversionsTrack carries raw conversion payloads from the
	// ingress to the worker pool.
	SubjectConversionsTrack = "conversions.track"

	// StreamConversions is the durable work queue backing the subject.
	StreamConversions = "CONVERSIONS"

	// ConsumerConversionWorkers is the shared durable consumer; workers in
	// this group split the stream between them.
	ConsumerConversionWorkers = "conversion-workers"
)
