// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package platform

// Features describes what a controller family can do. It is fixed at startup and
// handed to the platform by value.
type Features struct {
	MaxPulseMs           int
	HWRuleCoilDelay      bool
	VariableRecycleTime  bool
	VariableDebounceTime bool
	BulkSwitchQuery      bool
}

// JRFeatures returns the capabilities of the JR controller.
func JRFeatures() Features {
	return Features{
		MaxPulseMs:           255,
		HWRuleCoilDelay:      false,
		VariableRecycleTime:  false,
		VariableDebounceTime: false,
		BulkSwitchQuery:      false,
	}
}
