// Package qspi drives SPI-NOR flash through a memory-mapped AXI Quad SPI
// controller. Register reads, register writes and quad reads of the array
// are supported; programming and erasing the array are not.
//
// Every command is a single controller transfer: the bus mux routes the
// flash to the controller, the frame is queued in the TX FIFO, the slave
// select and control registers start and stop the transfer, and the RX FIFO
// is drained one byte per read. The mux is released afterwards whether or
// not the transfer succeeded.
//
// # References:
//
// Controller
//   - [PG153]: AXI Quad SPI LogiCORE IP Product Guide (https://docs.amd.com/r/en-US/pg153-axi-quad-spi)
//
// SPI Flash
//   - [S25FL-S]: S25FL128S/S25FL256S 128 Mb/256 Mb 3.0V SPI Flash Memory datasheet (https://www.infineon.com/dgdl/Infineon-S25FL128S_S25FL256S_128_Mb_(16_MB)_256_Mb_(32_MB)_3.0V_SPI_Flash_Memory-DataSheet-v18_00-EN.pdf)
package qspi
