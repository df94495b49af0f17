// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: INCR + PEXPIRE atômicos via script Lua (padrão)
//   - RedisWatchCounterStore: mesma semântica com WATCH/MULTI, para Redis sem scripting
//   - MemoryCounterStore: contadores com TTL em memória, para uma única instância
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore / RedisStatsStore: estatísticas das decisões
package infra
