package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsToolCallsSucceeded is base for counter metric for MCP tool calls that returned a result
	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsDisabled = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_disabled",
		Help:         "stats_tool_calls_disabled provides total tool calls rejected by the disabled-tool policy",
		RequiredTags: []string{"tool"},
	}

	StatsServerConnectsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_server_connects_failed",
		Help:         "stats_server_connects_failed provides total failed MCP server connections",
		RequiredTags: []string{"server"},
	}

	StatsStreamCallsDropped = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_stream_calls_dropped",
		Help:         "stats_stream_calls_dropped provides total streamed tool calls dropped as unusable",
		RequiredTags: []string{"reason"},
	}

	StatsTurnsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_turns_succeeded",
		Help:         "stats_turns_succeeded provides total turns completed",
		RequiredTags: []string{"model"},
	}

	StatsTurnsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_turns_failed",
		Help:         "stats_turns_failed provides total turns that ended with a generation failure",
		RequiredTags: []string{"model"},
	}

	StatsTurnsRetried = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_turns_retried",
		Help:         "stats_turns_retried provides total generation passes retried",
		RequiredTags: []string{"model"},
	}
)

// Perf
var (
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfServerConnect = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_server_connect",
		Help:         "perf_server_connect provides duration of MCP server connect and handshake",
		RequiredTags: []string{"server"},
	}

	PerfTurn = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_turn",
		Help:         "perf_turn provides duration of a full turn including continuation",
		RequiredTags: []string{"model"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfServerConnect,
	&PerfToolCall,
	&PerfTurn,
	&StatsServerConnectsFailed,
	&StatsStreamCallsDropped,
	&StatsToolCallsDisabled,
	&StatsToolCallsFailed,
	&StatsToolCallsSucceeded,
	&StatsTurnsFailed,
	&StatsTurnsRetried,
	&StatsTurnsSucceeded,
}
