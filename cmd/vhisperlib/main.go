// Command vhisperlib builds the stable C ABI: a thin cgo trampoline
// over pkg/ffi.Facade, meant to be built with `go build -buildmode=c-shared`
// (or c-archive) so a foreign host can link the resulting library and
// drive the engine through create/start_streaming/stop_streaming/
// cancel_streaming/get_state/update_config/destroy.
//
// Every exported function here does as little as possible: convert C
// types, call into the pure-Go Facade, convert the result back. All
// real logic — including the handle table and the streaming callback
// translation — lives in pkg/ffi and pkg/pipeline, where it can be
// tested without cgo.
package main

/*
#include <stdlib.h>
#include <stdint.h>

typedef void (*vhisper_stream_callback)(void *ctx, int32_t event_type, const char *text, const char *stash, const char *error);

static inline void vhisper_invoke_callback(vhisper_stream_callback cb, void *ctx, int32_t event_type, const char *text, const char *stash, const char *error) {
	if (cb != NULL) {
		cb(ctx, event_type, text, stash, error);
	}
}
*/
import "C"

import (
	"unsafe"

	"github.com/vimo-ai/vhisper-core/pkg/ffi"
)

// facade is the process-wide handle table; capture devices and task
// runtimes are process singletons per the design, so one Facade per
// process is all the ABI needs.
var facade = ffi.NewFacade()

//export vhisper_create
func vhisper_create(configJSON *C.char) C.int64_t {
	h, err := facade.Create(C.GoString(configJSON))
	if err != nil {
		return 0
	}
	return C.int64_t(h)
}

//export vhisper_destroy
func vhisper_destroy(handle C.int64_t) {
	facade.Destroy(int64(handle))
}

//export vhisper_get_state
func vhisper_get_state(handle C.int64_t) C.int32_t {
	return C.int32_t(facade.GetState(int64(handle)))
}

//export vhisper_is_streaming
func vhisper_is_streaming(handle C.int64_t) C.int32_t {
	return C.int32_t(facade.IsStreaming(int64(handle)))
}

//export vhisper_start_streaming
func vhisper_start_streaming(handle C.int64_t, cb C.vhisper_stream_callback, userCtx unsafe.Pointer) C.int32_t {
	code := facade.StartStreaming(int64(handle), func(eventType int32, text, stash, errMsg string) {
		cText := C.CString(text)
		cStash := C.CString(stash)
		cErr := C.CString(errMsg)
		C.vhisper_invoke_callback(cb, userCtx, C.int32_t(eventType), cText, cStash, cErr)
		C.free(unsafe.Pointer(cText))
		C.free(unsafe.Pointer(cStash))
		C.free(unsafe.Pointer(cErr))
	})
	return C.int32_t(code)
}

//export vhisper_stop_streaming
func vhisper_stop_streaming(handle C.int64_t) C.int32_t {
	return C.int32_t(facade.StopStreaming(int64(handle)))
}

//export vhisper_cancel_streaming
func vhisper_cancel_streaming(handle C.int64_t) C.int32_t {
	return C.int32_t(facade.CancelStreaming(int64(handle)))
}

//export vhisper_update_config
func vhisper_update_config(handle C.int64_t, configJSON *C.char) C.int32_t {
	return C.int32_t(facade.UpdateConfig(int64(handle), C.GoString(configJSON)))
}

//export vhisper_string_free
func vhisper_string_free(s *C.char) {
	C.free(unsafe.Pointer(s))
}

//export vhisper_version
func vhisper_version() *C.char {
	return C.CString(ffi.Version)
}

func main() {}
