// Package procs supervises helper processes launched by the streaming node.
//
// A Supervisor starts external commands either on their own, chained into
// stdout->stdin pipelines, or with caller-controlled standard streams:
//   - StartSingle inherits the supervisor's stdin/stdout/stderr
//   - StartPipeline2/StartPipeline3/StartPipeline chain stages through pipes,
//     the first stage reading the null device
//   - StartControlled maps each standard stream to a caller file or to a
//     fresh pipe whose caller-side end is handed back
//
// Every launch is registered under a logical name. Launching under a name
// that is still active is a no-op returning the existing lead PID. All
// stages of a pipeline share the name, so a name may map to several PIDs.
//
// Children are reaped asynchronously. The first launch subscribes to
// SIGCHLD; a single goroutine drains the signal channel, polls every
// registered PID with a non-blocking wait4, drops the record and invokes the
// termination notifier registered for that PID, if any, exactly once.
//
// Example:
//
//	sup := procs.NewSupervisor(&procs.Options{Logger: logging.GetLogger("procs")})
//	defer sup.Close()
//
//	pid, err := sup.StartPipeline2("audio", "arecord -f cd -t raw", "opusenc - out.opus")
//	if err != nil {
//	    return err
//	}
//	sup.SetNotifier(pid, func(pid int, status procs.ExitStatus) {
//	    log.Printf("audio capture %d finished: %s", pid, status)
//	})
//	...
//	sup.Stop("audio")
package procs
