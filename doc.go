/*
Package work provides Go implementation of Nano proof of work generation. The
SDK consists of a few components:

1. Generators: CPUGenerator, OpenCLGenerator, RemoteGenerator (DPoW/BPoW style
services) and NodeGenerator (a node's work_generate RPC). Every generator owns
a FIFO queue drained by a single goroutine and returns a cancellable Handle for
each request.

2. CombinedGenerator: Race several generators with the same request and keep
the first result. The remaining requests are cancelled.

3. Difficulty policies: ConstantPolicy (PolicyV1, PolicyV2), NodePolicy (the
active_difficulty RPC) and DifficultyTracker (the active_difficulty websocket
topic). Policies are evaluated when a request starts, not when it is
submitted.

4. WorkCache: A bounded LRU cache from root to the best known solution.

Work

Work for a 32 byte root is an 8 byte nonce such that the blake2b digest (8
bytes) of the little endian nonce followed by the root, read as a little
endian integer, is at least the required difficulty:

  gen, err := work.NewCPUGenerator(nil)
  if err != nil {
    return err
  }
  defer gen.Shutdown()

  h, err := gen.Generate(root, work.DifficultyV2Send)
  if err != nil {
    return err
  }
  result, err := h.Wait(ctx)

OpenCL

The OpenCL backend needs cgo and an OpenCL runtime. It is only compiled with
the opencl build tag:

  go build -tags opencl ./...

Without the tag NewOpenCLGenerator returns ErrOpenCLUnavailable.
*/
package work
