package compiler

import "errors"

// Error taxonomy for the Compiler Orchestrator (C6) and the pipeline it
// drives (C1-C5). Lower-level packages (toolchain, wasmmodule, aot,
// contractstore) define their own, more specific sentinels; Orchestrator
// operations wrap them into this taxonomy so callers see one consistent
// error surface regardless of which pipeline stage failed.
var (
	ErrWriteFileError              = errors.New("compiler: write file error")
	ErrFolderNotCreated            = errors.New("compiler: folder not created")
	ErrCargoExecError              = errors.New("compiler: toolchain exec error")
	ErrAddContractFail             = errors.New("compiler: add contract failed")
	ErrInvalidImportFound          = errors.New("compiler: invalid import found")
	ErrNoSDKFound                  = errors.New("compiler: required sdk import missing")
	ErrBorshSerializeContractError = errors.New("compiler: borsh serialize contract error")
	ErrDatabaseError               = errors.New("compiler: database error")
	ErrGovernanceError             = errors.New("compiler: governance error")
)

// ErrTempFolderCreationFailed wraps aot.ErrScratchDirFailed: the AOT
// compiler could not create the scratch directory it stages a compilation
// cache under, distinct from ErrFolderNotCreated (the toolchain's fixed
// workspace directory).
var ErrTempFolderCreationFailed = errors.New("compiler: temp folder creation failed")

// ErrAlreadyRunning is returned by UpdateContracts when another batch is
// already in flight on this Orchestrator.
var ErrAlreadyRunning = errors.New("compiler: a compilation batch is already running")
