package helper

import "bufio"

// ScannerInitialBufferSize defines the initial buffer capacity for SSE scanners.
const ScannerInitialBufferSize = 64 * 1024

// ScannerMaxTokenSize defines the maximum line size an SSE scanner accepts.
// Upstream providers occasionally emit very large single-line payloads
// (base64 images inside deltas), so this is deliberately generous.
const ScannerMaxTokenSize = 16 * 1024 * 1024

// ConfigureScannerBuffer grows the scanner buffer to handle large stream lines.
// Safe to call multiple times for the same scanner.
func ConfigureScannerBuffer(scanner *bufio.Scanner) {
	if scanner == nil {
		return
	}
	scanner.Buffer(make([]byte, ScannerInitialBufferSize), ScannerMaxTokenSize)
}
