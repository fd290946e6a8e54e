package utils

import "unsafe"

// StringTakeOverByteArray converts a byte array to a string without making a copy.
// The caller must ensure that the byte array provided is not modified after this call.
func StringTakeOverByteArray(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(data), len(data))
}

// ByteArrayFromString converts a string to a byte array without making a copy.
// The caller must ensure that the returned byte array is not modified after this call.
func ByteArrayFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

