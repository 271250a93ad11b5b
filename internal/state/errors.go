package state

import "errors"

// ErrUnknownPendingJob is returned when a job completion is registered for
// a job ID not found among pending jobs.
var ErrUnknownPendingJob = errors.New("unknown pending job")

// ErrCorruptState is returned when loading workflow_state.json cannot
// reconstruct every item and job instance after a full pass makes no
// further progress.
var ErrCorruptState = errors.New("workflow state file is corrupt or incomplete")

// ErrModuleShapeMismatch is returned when a loaded state file's recorded
// module shape (inputs/outputs) disagrees with the currently declared
// module of the same name.
var ErrModuleShapeMismatch = errors.New("module shape does not match saved state")
