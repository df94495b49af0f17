// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Política, identidade, decisão e o contrato do store de contadores vivem aqui,
// junto com a taxonomia de erros usada pelas camadas de cima.
package domain
