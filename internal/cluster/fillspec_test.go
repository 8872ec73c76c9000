package cluster

import "testing"

func containsField(fields []string, want string) bool {
	for _, f := range fields {
		if f == want {
			return true
		}
	}
	return false
}

func TestClosureDataDropsContextScopeForFullAOT(t *testing.T) {
	aot := Flags{Kind: KindFullAOT}
	fields := TypeTableFields("ClosureData", aot)
	if containsField(fields, "context_scope") {
		t.Errorf("FullAOT ClosureData should drop context_scope, got %v", fields)
	}
	if !containsField(fields, "default_type_arguments_info") {
		t.Errorf("FullAOT ClosureData should keep default_type_arguments_info, got %v", fields)
	}

	jit := Flags{Kind: KindFullJIT}
	fields = TypeTableFields("ClosureData", jit)
	if !containsField(fields, "context_scope") {
		t.Errorf("non-AOT ClosureData should keep context_scope, got %v", fields)
	}
}

func TestCodeDropsDeoptAndStaticCallsUnlessPrecompiledOrFullJIT(t *testing.T) {
	core := Flags{Kind: KindFullCore}
	fields := TypeTableFields("Code", core)
	if containsField(fields, "deopt_info_array") || containsField(fields, "static_calls_target_table") {
		t.Errorf("FullCore Code should drop deopt/static-calls fields, got %v", fields)
	}

	jit := Flags{Kind: KindFullJIT}
	fields = TypeTableFields("Code", jit)
	if !containsField(fields, "deopt_info_array") || !containsField(fields, "static_calls_target_table") {
		t.Errorf("FullJIT Code should keep deopt/static-calls fields, got %v", fields)
	}

	precompiled := Flags{Kind: KindFullAOT, IsPrecompiled: true}
	fields = TypeTableFields("Code", precompiled)
	if !containsField(fields, "deopt_info_array") || !containsField(fields, "static_calls_target_table") {
		t.Errorf("precompiled Code should keep deopt/static-calls fields, got %v", fields)
	}
}

func TestTypeTableFieldsUnknownHandlerReturnsNil(t *testing.T) {
	if fields := TypeTableFields("NotARealHandler", Flags{}); fields != nil {
		t.Errorf("unknown handler should return nil, got %v", fields)
	}
}

func TestDoesReadFromExcludesSelfDrivenHandlers(t *testing.T) {
	for _, h := range []string{"Instance", "Function", "Array", "OneByteString", "PcDescriptors"} {
		if DoesReadFrom(h) {
			t.Errorf("DoesReadFrom(%s) = true, want false (self-driven fill)", h)
		}
	}
}

func TestDoesReadFromIncludesTypeTableHandlers(t *testing.T) {
	for _, h := range []string{"Code", "ObjectStore", "Closure", "TypeRef"} {
		if !DoesReadFrom(h) {
			t.Errorf("DoesReadFrom(%s) = false, want true", h)
		}
	}
}
