package build

// LogLevel is the level used by the stdout loggers handed out in
// development builds.
var LogLevel = "info"

// LoggingType is the active log type. Development builds log to stdout so
// that test output carries the subsystem logs.
var LoggingType = LogTypeStdOut
