package proxy

var (
	MetricConnectCount      = []string{"rpc", "proxy", "connect", "count"}
	MetricConnectErrorCount = []string{"rpc", "proxy", "connect", "error", "count"}
	MetricDisposeCount      = []string{"rpc", "proxy", "dispose", "count"}
)
