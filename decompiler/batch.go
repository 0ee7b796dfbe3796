package decompiler

import (
	"context"
	"runtime"
	"sync"

	"github.com/zeebo/blake3"
)

// Input is one class file of a batch.
type Input struct {
	Name string
	Data []byte
}

// Output pairs an input with its result. Duplicate reports whether the
// result was shared with an earlier input of identical content.
type Output struct {
	Input     Input
	Result    *Result
	Err       error
	Duplicate bool
}

// Batch decompiles inputs on opts.Workers goroutines, one class per worker
// at a time, and returns the outputs in input order. Classes with
// identical bytes are decompiled once.
func Batch(ctx context.Context, inputs []Input, opts Options) []Output {
	out := make([]Output, len(inputs))
	first := make(map[[32]byte]int)
	origin := make([]int, len(inputs))
	var unique []int
	for i, in := range inputs {
		out[i].Input = in
		sum := blake3.Sum256(in.Data)
		if j, ok := first[sum]; ok {
			out[i].Duplicate = true
			origin[i] = j
			continue
		}
		first[sum] = i
		origin[i] = i
		unique = append(unique, i)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(unique) {
		workers = len(unique)
	}
	// Classes already run in parallel; methods of one class stay sequential.
	perClass := opts
	perClass.Workers = 1

	tasks := make(chan int, len(unique))
	for _, i := range unique {
		tasks <- i
	}
	close(tasks)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range tasks {
				if err := ctx.Err(); err != nil {
					out[i].Err = err
					continue
				}
				out[i].Result, out[i].Err = DecompileContext(ctx, inputs[i].Data, perClass)
			}
		}()
	}
	wg.Wait()

	for i := range out {
		if j := origin[i]; j != i {
			out[i].Result, out[i].Err = out[j].Result, out[j].Err
		}
	}
	return out
}
