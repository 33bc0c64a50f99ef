package channel

var (
	MetricCallCount        = []string{"rpc", "channel", "call", "count"}
	MetricRemoteErrorCount = []string{"rpc", "channel", "remote", "error", "count"}
	MetricOrphanCount      = []string{"rpc", "channel", "orphan", "count"}
	MetricAnomalyCount     = []string{"rpc", "channel", "anomaly", "count"}
)
