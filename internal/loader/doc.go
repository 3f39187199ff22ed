// Package loader turns the devices file into live registry contents.
//
// # Architecture
//
//	devices.yaml ──► parse ──► validate ──► build registry types
//	                                             │
//	                      SensorDevices.ReplaceAll (kinds + sensors)
//	                      RelayDevices.ReplaceAll  (relays + lights)
//
// Parsing and validation happen entirely before either registry is touched;
// a bad file leaves the running configuration untouched. The two ReplaceAll
// calls take the registries in the engine's lock order (sensors first) so a
// reload can never deadlock against a cycle.
//
// # File Format
//
//	kinds:
//	  - id: 1
//	    name: PIR_Trigger
//	sensors:
//	  - id: 1
//	    name: hallway-pir
//	    kind: 1
//	    board: 3a-0000001cafe0   # owfs name; bare address takes family 0x3a
//	    pio: A                   # A (bit 0) or B (bit 2); default A
//	    relays: [1]
//	relays:
//	  - id: 1
//	    name: hallway-light
//	    board: 29-00000012f3a4   # bare address takes family 0x29
//	    bit: 0
//	    pir_hold: 2m
//	    switch_hold: 1h
//	yeelights:
//	  - id: 2
//	    name: desk-lamp
//	    address: 192.168.1.40
//	    pir_hold: 2m
//	    switch_hold: 1h
//
// Reload is the same operation as Load; the persistence worker calls it when
// a ReloadDevices event arrives, which serialises reloads with counter
// writes.
package loader
