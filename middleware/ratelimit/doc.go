// Package ratelimit fornece adapters HTTP (net/http) para o rate limit de
// janela fixa e para o limite de concorrência.
//
// Camadas:
//
//   - domain: política, identidade, decisão e contratos do store (sem net/http)
//   - application: Service.Check (decisão allow/deny) e ConcurrencyService
//   - infra: stores concretos (Redis script, Redis WATCH, memória), semáforo e estatísticas
//   - ratelimit (este pacote): middlewares HTTP, extração de identidade e tradução para status/headers
//
// Fluxo por requisição:
//
//  1. Extrai a identidade do cliente (IP/XFF/header/usuário)
//  2. Chama Service.Check com a política da rota
//  3. Bloqueado: 429 com Retry-After; store fora: segue ou 503, conforme FailureMode
//  4. Permitido: chama o próximo handler
package ratelimit
