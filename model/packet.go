package model

// SamplePacket holds one millisecond of complex baseband IQ samples at the
// receiver's configured sample rate. A packet is immutable once enqueued;
// ownership transfers to the receiver on enqueue.
type SamplePacket []complex128
