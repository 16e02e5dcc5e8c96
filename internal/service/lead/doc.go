// Package lead manages a campaign's lead list: import into the FIFO send
// queue and recipient-initiated unsubscribe.
package lead
