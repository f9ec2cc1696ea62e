package metrics

// Operation kinds used as metric labels.
const (
	KindTransfer = "transfer"
	KindContract = "contract"
	KindDeploy   = "deploy"
)

type Metricer interface {
	RecordInfo(version string)
	RecordUp()

	RecordGasEstimate(kind string, gas uint64)
	RecordCeilingRejection(kind string)
	RecordSubmission(kind string) (onDone func(err error))

	RecordAttach(generation string)
	RecordConnectionChange()
}
