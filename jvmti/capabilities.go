package jvmti

import mapset "github.com/deckarep/golang-set"

// Capability names requested at attach (§4.6 step 3). These mirror the JVMTI
// capability flags this agent needs: tagging for future extension, class
// load visibility, source file and line number access, and compiled-method
// load events.
const (
	CapTagObjects                       = "can_tag_objects"
	CapGenerateAllClassHookEvents       = "can_generate_all_class_hook_events"
	CapGenerateObjectFreeEvents         = "can_generate_object_free_events"
	CapGetSourceFileName                = "can_get_source_file_name"
	CapGetLineNumbers                   = "can_get_line_numbers"
	CapGenerateVMObjectAllocEvents      = "can_generate_vm_object_alloc_events"
	CapGenerateCompiledMethodLoadEvents = "can_generate_compiled_method_load_events"
)

// RequiredCapabilities returns the capability set requested at attach (§4.6
// step 3), held as a set rather than a plain slice so that repeated,
// idempotent attach attempts and diagnostic logging can de-duplicate without
// hand-rolled membership scans.
func RequiredCapabilities() mapset.Set {
	s := mapset.NewSet()
	for _, name := range []string{
		CapTagObjects,
		CapGenerateAllClassHookEvents,
		CapGenerateObjectFreeEvents,
		CapGetSourceFileName,
		CapGetLineNumbers,
		CapGenerateVMObjectAllocEvents,
		CapGenerateCompiledMethodLoadEvents,
	} {
		s.Add(name)
	}
	return s
}
