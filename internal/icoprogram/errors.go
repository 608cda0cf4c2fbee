package icoprogram

import (
	"fmt"
	"regexp"
	"strconv"
)

// ProgramError is a custom error code returned by the sale program.
type ProgramError struct {
	Code    uint32
	Name    string
	Message string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

// Anchor numbers user errors from 6000.
const anchorErrorOffset = 6000

// Custom errors of the sale program, in declaration order.
var (
	ErrProgramOverflow     = &ProgramError{Code: anchorErrorOffset, Name: "Overflow", Message: "Arithmetic overflow"}
	ErrProgramInvalidAdmin = &ProgramError{Code: anchorErrorOffset + 1, Name: "InvalidAdmin", Message: "Invalid admin"}
	ErrProgramUserLimit    = &ProgramError{Code: anchorErrorOffset + 2, Name: "ExceedsTotalUserLimit", Message: "Total purchases exceed user limit"}
)

var programErrors = []*ProgramError{ErrProgramOverflow, ErrProgramInvalidAdmin, ErrProgramUserLimit}

// ProgramErrorFromCode maps a custom error code to the program error.
func ProgramErrorFromCode(code uint32) (*ProgramError, bool) {
	for _, e := range programErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}

var customErrorPattern = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)

// FindProgramError scans transaction logs or error text for a custom program error.
func FindProgramError(lines ...string) (*ProgramError, bool) {
	for _, line := range lines {
		m := customErrorPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		code, err := strconv.ParseUint(m[1], 16, 32)
		if err != nil {
			continue
		}
		if e, ok := ProgramErrorFromCode(uint32(code)); ok {
			return e, true
		}
	}
	return nil, false
}

// CustomErrorLog renders the log line the runtime emits for a failed instruction.
func CustomErrorLog(programID fmt.Stringer, e *ProgramError) string {
	return fmt.Sprintf("Program %s failed: custom program error: 0x%x", programID, e.Code)
}
