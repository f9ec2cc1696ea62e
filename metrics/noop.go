package metrics

type NoopMetrics struct{}

func (n NoopMetrics) RecordInfo(version string) {}

func (n NoopMetrics) RecordUp() {}

func (n NoopMetrics) RecordGasEstimate(kind string, gas uint64) {}

func (n NoopMetrics) RecordCeilingRejection(kind string) {}

func (n NoopMetrics) RecordSubmission(kind string) (onDone func(err error)) {
	return func(err error) {}
}

func (n NoopMetrics) RecordAttach(generation string) {}

func (n NoopMetrics) RecordConnectionChange() {}

var _ Metricer = NoopMetrics{}
