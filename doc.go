// Package forge compiles shaders in the background and hot-reloads the GPU
// pipelines built from them.
//
// # Overview
//
// A [State] owns a single compiler worker goroutine. Shaders are submitted
// under a [Tag], compiled from WGSL to SPIR-V by naga, turned into device
// shader modules and published in a [Registry]. Pipelines are built through
// [State.RenderPipelineBuilder] and [State.ComputePipeline]; each build
// records a recipe in the [Manufactory]. When a shader recompiles, every
// pipeline depending on it is rebuilt and swapped into the [Pipeline] handle
// the caller already holds.
//
// # Quick Start
//
//	state, err := forge.New(device)
//	if err != nil {
//	    return err
//	}
//	defer state.Close()
//
//	vert := forge.TagFromName("sprite.vert")
//	frag := forge.TagFromName("sprite.frag")
//	if err := state.LoadFile(ctx, vert, "shaders/sprite.wgsl", "vs_main", forge.StageVertex); err != nil {
//	    return err
//	}
//	if err := state.LoadFile(ctx, frag, "shaders/sprite.wgsl", "fs_main", forge.StageFragment); err != nil {
//	    return err
//	}
//
//	pipeline, err := state.RenderPipelineBuilder("sprite", layout, vert).
//	    Fragment(frag, gputypes.ColorTargetState{
//	        Format:    gputypes.TextureFormatBGRA8Unorm,
//	        WriteMask: gputypes.ColorWriteMaskAll,
//	    }).
//	    Build()
//
//	// Every frame:
//	pass.SetPipeline(pipeline.Get())
//	// ... once the GPU finished the frame:
//	state.Cull()
//
// # Hot Reload
//
// Files loaded with [State.LoadFile] are watched. Saving a file recompiles
// every tag loaded from it. A failed compilation is logged and leaves the
// previous module and pipelines in place; saving a fixed file recovers
// without further action.
//
// # Garbage
//
// Pipeline objects and shader modules displaced by a reload may still be
// referenced by frames in flight. They are kept until [State.Cull], which
// the render loop calls once per fully retired frame.
//
// # Logging
//
// forge logs through log/slog and is silent by default; see [SetLogger] and
// [WithLogger].
package forge
