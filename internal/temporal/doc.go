// Package temporal connects the job controller to Temporal.
//
// When durable dispatch is enabled, every job run is a JobWorkflow
// execution with the deterministic ID "job-<job id>". Starting the same
// job twice is rejected by Temporal itself. The workflow calls three
// activities in order:
//
//   - StartJob moves the job from pending to running
//   - ExecuteJob runs the extraction engine and heartbeats while it works
//   - AbandonJob marks the job interrupted when ExecuteJob was lost
//
// Stop requests arrive as the "stop" signal, which sets the job's
// persisted stop flag. The engine reads that flag at its next node
// boundary, the same way it does when jobs run on the local pool.
//
// # Client Setup
//
//	c, err := temporal.NewClient(temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    Namespace: "default",
//	    TaskQueue: "interaction-miner",
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	jc := temporal.NewJobClient(c, cfg)
//	workflowID, err := jc.StartJob(ctx, jobID)
//
// # Worker Setup
//
//	w, err := temporal.NewWorker(c, temporal.WorkerConfig{TaskQueue: cfg.TaskQueue},
//	    workflows.JobWorkflow, activities.NewJobActivities(runner, jobRepo, controller))
//	if err != nil {
//	    return err
//	}
//	return temporal.StartWorker(ctx, w)
package temporal
